package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is a chart of accounts node.
type Account struct {
	ID             uuid.UUID
	Code           string
	Description    string
	Classification string
	Nature         string
	ParentGroupID  *uuid.UUID
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

// NormalizeCode trims and uppercases an account code; codes are unique case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
