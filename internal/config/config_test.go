package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level = "debug"

postgres {
  host     = "db.internal"
  dbname   = "doccontrol"
  user     = "doccontrol"
  password = env.DOCCONTROL_DB_PASSWORD
}

archive {
  retention_years = 10
}

reindex {
  delay = "250ms"
  tika {
    url = "http://tika:9998"
  }
}

storage {
  s3 {
    region = "us-west-2"
    bucket = "controlled-docs"
    prefix = "prod/"
  }
}

search {
  bleve {
    index_path = "/var/lib/doccontrol/index"
  }
}

notifications {
  brokers = ["redpanda:9092"]
}
`

func TestParse(t *testing.T) {
	cfg, err := Parse("config.hcl", []byte(sample), []string{"DOCCONTROL_DB_PASSWORD=s3cret", "PATH=/usr/bin"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	require.NotNil(t, cfg.Postgres)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)

	assert.Equal(t, 10, cfg.Archive.RetentionYears)
	assert.Equal(t, 4, cfg.ControlNumbers.SequenceWidth)
	assert.Equal(t, 30, cfg.Review.DueSoonDays)
	assert.Equal(t, 14, cfg.Acknowledgment.DueDays)
	assert.Equal(t, 50, cfg.Evidence.MinConfidence)

	delay, err := cfg.Reindex.DelayDuration()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, delay)
	assert.Equal(t, 20, cfg.Reindex.MaxTags)
	require.NotNil(t, cfg.Reindex.Tika)
	assert.Equal(t, "http://tika:9998", cfg.Reindex.Tika.URL)
	assert.Equal(t, "2m", cfg.Reindex.Tika.Timeout)

	require.NotNil(t, cfg.Storage.S3)
	assert.Equal(t, "controlled-docs", cfg.Storage.S3.Bucket)
	assert.Equal(t, 30, cfg.Storage.S3.RequestTimeoutSeconds)

	assert.Equal(t, "/var/lib/doccontrol/index", cfg.Search.Bleve.IndexPath)
	assert.Equal(t, []string{"redpanda:9092"}, cfg.Notifications.Brokers)
	assert.Equal(t, "doccontrol.notifications", cfg.Notifications.Topic)
	assert.Equal(t, "doccontrol-notifiers", cfg.Notifications.ConsumerGroup)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("config.hcl", []byte(""), nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Postgres)
	assert.Nil(t, cfg.Storage)
	assert.Equal(t, "100ms", cfg.Reindex.Delay)
	assert.Equal(t, int64(50<<20), cfg.Reindex.MaxFileSize)
	assert.Equal(t, 7, cfg.Archive.RetentionYears)
}

func TestParse_ValidationErrors(t *testing.T) {
	src := `
log_level = "loud"

evidence {
  min_confidence = 150
}

reindex {
  delay = "soon"
}

storage {
  local {
    dir = "/srv/docs"
  }
  s3 {
    region = "us-east-1"
    bucket = "docs"
    access_key = "AKIA"
  }
}
`
	_, err := Parse("config.hcl", []byte(src), nil)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "min_confidence")
	assert.Contains(t, err.Error(), "reindex.delay")
	assert.Contains(t, err.Error(), "exactly one of local or s3")
	assert.Contains(t, err.Error(), "access_key and secret_key")
}

func TestParse_UnknownEnv(t *testing.T) {
	src := `
postgres {
  host   = "localhost"
  dbname = env.MISSING_DB_NAME
}
`
	_, err := Parse("config.hcl", []byte(src), []string{"OTHER=1"})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "not found")

	path := filepath.Join(t.TempDir(), "doccontrol.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
storage {
  local {
    dir = "/srv/docs"
  }
}
`), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", cfg.Storage.Local.Dir)
}
