package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toolkiosk/models"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrUserBanned     = errors.New("user_banned")
	ErrCardUnknown    = errors.New("card_not_recognized")
	ErrUnknownToolTag = errors.New("unknown_tool_tag")
	ErrToolLoaned     = errors.New("tool_already_loaned")
	ErrNoDispenseReq  = errors.New("no_matching_dispense_request")
)

// MustUserActive loads the user and rejects banned or unknown statuses.
func (r *Repo) MustUserActive(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidUser
		}
		return nil, err
	}
	return checkUserStatus(&u)
}

// FindUserByCard resolves an RFID card scan to a user.
func (r *Repo) FindUserByCard(ctx context.Context, cardID string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "card_id = ?", cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardUnknown
		}
		return nil, err
	}
	if u.Status == models.UserStatusBanned {
		return nil, ErrUserBanned
	}
	return &u, nil
}

func checkUserStatus(u *models.User) (*models.User, error) {
	if u.Status == models.UserStatusBanned {
		return nil, ErrUserBanned
	}
	for _, s := range models.AllowedUserStatuses {
		if u.Status == s {
			return u, nil
		}
	}
	return nil, ErrInvalidUser
}

// lockForUpdate applies a row lock on dialects that support it. The sqlite
// used in tests has no FOR UPDATE; there the transaction alone serializes.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// logEvent appends one audit row inside the caller's transaction.
func logEvent(tx *gorm.DB, eventType, actorType string, actorID, requestID, toolItemID *string, payload any) error {
	pj := "{}"
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			pj = string(b)
		}
	}
	return tx.Create(&models.Event{
		TS:          time.Now().UTC(),
		EventType:   eventType,
		ActorType:   actorType,
		ActorID:     actorID,
		RequestID:   requestID,
		ToolItemID:  toolItemID,
		PayloadJSON: pj,
	}).Error
}

func strptr(s string) *string { return &s }
