package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/utils"
)

// EnsureAdmin creates the bootstrap administrator unless an admin with that
// phone already exists. It reports whether an account was created.
func EnsureAdmin(conn *gorm.DB, phone, password string) (bool, error) {
	if phone == "" || password == "" {
		return false, nil
	}

	var existing models.Admin
	err := conn.Where("phone = ?", phone).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := models.Admin{
		Phone:        phone,
		DisplayName:  "Administrator",
		PasswordHash: hash,
	}
	if err := conn.Create(&admin).Error; err != nil {
		return false, err
	}
	return true, nil
}
