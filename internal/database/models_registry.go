package database

import "rentonmap/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Parents precede children so AutoMigrate can create them in order.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Listing{},
		&models.ListingFeature{},
		&models.SavedListing{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
	}
}
