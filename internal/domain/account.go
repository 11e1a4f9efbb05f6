package domain

type ServerConfig struct {
	Host string `db:"host"`
	Port int    `db:"port"`
	TLS  bool   `db:"tls"`
}

// Account is a monitored mailbox or SMS feed owned by one user.
type Account struct {
	ID          int64
	Address     string
	Password    string
	Inbound     ServerConfig
	Outbound    ServerConfig
	Bad         bool
	LastError   string
	SMSOnly     bool
	Placeholder bool
}

// Pollable reports whether the poll loop should open this account's mailbox.
func (a Account) Pollable() bool {
	return !a.Placeholder && !a.Bad && !a.SMSOnly
}
