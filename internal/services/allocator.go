package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
)

// ConversionThreshold is the number of accumulated points that buys one Global Number.
const ConversionThreshold int64 = 1500

// allocateGlobalNumber increments the persisted counter and returns the new
// value. The increment holds the counter row lock until tx commits, and a
// rollback also rolls back the increment, so numbers are never duplicated and
// never skipped.
func allocateGlobalNumber(tx *gorm.DB) (int64, error) {
	res := tx.Model(&models.GlobalNumberCounter{}).
		Where("name = ?", models.GlobalCounterName).
		Update("value", gorm.Expr("value + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("global number counter %q is not seeded", models.GlobalCounterName)
	}

	var counter models.GlobalNumberCounter
	if err := tx.Where("name = ?", models.GlobalCounterName).First(&counter).Error; err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// mintGlobalNumber allocates the next number to customerID and queues its
// StepUp evaluation.
func (e *Engine) mintGlobalNumber(q *taskQueue, customerID uuid.UUID, source models.GlobalNumberSource, cycleID *uuid.UUID) (*models.GlobalSerialNumber, error) {
	number, err := allocateGlobalNumber(q.tx)
	if err != nil {
		return nil, err
	}

	serial := models.GlobalSerialNumber{
		GlobalNumber:    number,
		CustomerID:      customerID,
		Source:          source,
		InfinityCycleID: cycleID,
		CreatedAt:       e.now(),
	}
	if err := q.tx.Create(&serial).Error; err != nil {
		return nil, err
	}

	if err := q.push(models.CascadeTask{
		Kind:         models.TaskStepUp,
		CustomerID:   &customerID,
		GlobalNumber: number,
	}); err != nil {
		return nil, err
	}

	e.metrics.ObserveGlobalNumber(string(source))
	return &serial, nil
}

// maybeConvert adds freshly earned points to the accumulation bucket of a
// locked customer wallet and converts every full threshold into a Global
// Number. The bucket always ends in [0, ConversionThreshold).
func (e *Engine) maybeConvert(q *taskQueue, wallet *models.Wallet, earned int64) ([]models.GlobalSerialNumber, error) {
	wallet.AccumulatedPoints += earned

	var minted []models.GlobalSerialNumber
	for wallet.AccumulatedPoints >= ConversionThreshold {
		wallet.AccumulatedPoints -= ConversionThreshold
		serial, err := e.mintGlobalNumber(q, wallet.OwnerID, models.GlobalNumberEarned, nil)
		if err != nil {
			return nil, err
		}
		minted = append(minted, *serial)
	}

	if err := q.tx.Model(wallet).Update("accumulated_points", wallet.AccumulatedPoints).Error; err != nil {
		return nil, err
	}
	return minted, nil
}
