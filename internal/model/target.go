package model

import "time"

// DeliveryTarget is a destination a release package can be delivered to.
// It is read once per attempt and treated as immutable for that attempt.
type DeliveryTarget struct {
	ID            string     `json:"id"`
	Name          string     `json:"name" validate:"required"`
	Protocol      Protocol   `json:"protocol" validate:"required,oneof=FTP SFTP S3 Azure API DSP Storage"`
	Type          TargetType `json:"type" validate:"required,oneof=DSP Aggregator Test"`
	Connection    Connection `json:"connection"`
	Active        bool       `json:"active"`
	DistributorID string     `json:"distributorId,omitempty"`
	TestMode      bool       `json:"testMode,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Connection holds the protocol-specific settings of a target. Only the
// fields relevant to the target's protocol are read.
type Connection struct {
	// FTP / SFTP
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	HostKey    string `json:"hostKey,omitempty"`
	Directory  string `json:"directory,omitempty"`
	Secure     bool   `json:"secure,omitempty"`

	// S3
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`

	// Azure
	AccountName   string `json:"accountName,omitempty"`
	AccountKey    string `json:"accountKey,omitempty"`
	ContainerName string `json:"containerName,omitempty"`

	// S3 / Azure / Storage
	Prefix string `json:"prefix,omitempty"`

	// API / DSP
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Auth    *APIAuth          `json:"auth,omitempty"`

	// Storage
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// APIAuth describes how API and DSP adapters authenticate.
type APIAuth struct {
	Type        AuthType        `json:"type"`
	Credentials AuthCredentials `json:"credentials"`
}

// AuthCredentials carries the secret material for an AuthType.
type AuthCredentials struct {
	Token        string `json:"token,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	TokenURL     string `json:"tokenUrl,omitempty"`
	Scope        string `json:"scope,omitempty"`
}
