package model

import "time"

// Principal is a signed-in identity as reported by the identity provider.
type Principal struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
}

type Account struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"displayName"`
	PhotoURL       string     `json:"photoURL"`
	Points         int64      `json:"points"`
	TotalEarned    int64      `json:"totalEarned"`
	VPSCreated     int64      `json:"vpsCreated"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastLogin      time.Time  `json:"lastLogin"`
	LastDailyBonus *time.Time `json:"lastDailyBonus,omitempty"`
}

// Delta is a set of signed increments applied to an account in one step.
type Delta struct {
	Points      int64
	TotalEarned int64
	VPSCreated  int64
}

const VPSStatusCreating = "creating"

type VPSRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	OSVersion string    `json:"osVersion"`
	Language  string    `json:"language"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Endpoint holds the connection details shown after a redemption. They are
// static placeholders until provisioning reports back.
type Endpoint struct {
	RDPAddress string `json:"rdpAddress"`
	WebURL     string `json:"webURL"`
	Username   string `json:"username"`
}
