package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&DocumentType{}, // Must be first - documents reference it
		&ControlNumberSequence{},
		&DocumentFolder{},
		&Document{},
		&DocumentRevision{},
		&DocumentApproval{},
		&DocumentReview{},
		&DocumentDistribution{},
		&DocumentAcknowledgment{},
		&DocumentArchive{},
	}
}
