package database

import "thirtyday/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.FriendConnection{},
		&models.Challenge{},
		&models.APIKey{},
	}
}
