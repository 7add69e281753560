package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Session tracks one MCP connection for the optional transcript store.
type Session struct {
	ID        string    `gorm:"primaryKey;type:varchar(50)"`
	Peer      string    `gorm:"type:varchar(10)"` // client or server
	StartedAt time.Time `gorm:"autoCreateTime"`
	EndedAt   *time.Time

	// Statistics
	ExchangeCount int `gorm:"default:0"`

	// Negotiated handshake details
	ProtocolVersion string         `gorm:"type:varchar(20)"`
	PeerInfo        datatypes.JSON `gorm:"type:jsonb"`
}

// Exchange is one recorded request/response pair or notification.
type Exchange struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"type:varchar(50);index"`

	Direction string `gorm:"type:varchar(10)"` // inbound or outbound
	Method    string `gorm:"type:varchar(100);not null"`
	RequestID string `gorm:"type:varchar(50)"`

	Params datatypes.JSON `gorm:"type:jsonb"`
	Result datatypes.JSON `gorm:"type:jsonb"`
	Error  string         `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`

	// Relationship
	Session Session `gorm:"foreignKey:SessionID"`
}

// NewExchange encodes the params/result payloads into an Exchange row.
func NewExchange(sessionID, direction, method string, params, result map[string]any) (*Exchange, error) {
	row := &Exchange{
		SessionID: sessionID,
		Direction: direction,
		Method:    method,
	}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		row.Params = datatypes.JSON(encoded)
	}
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		row.Result = datatypes.JSON(encoded)
	}
	return row, nil
}

// TableName customizations for cleaner names
func (Session) TableName() string  { return "sessions" }
func (Exchange) TableName() string { return "exchanges" }
