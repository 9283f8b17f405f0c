package models

import "net/url"

// Outbound command names
const (
	OutboundRegister  = "register"
	OutboundGetConfig = "get_config"
	OutboundHeartbeat = "heartbeat"
)

// ClientType identifies this kind of endpoint to the server
const ClientType = 2

// EncodeOutbound builds the payload of an outbound command:
// <client id>&6A&<form-encoded message>
func EncodeOutbound(clientID, message string) []byte {
	return []byte(clientID + "&6A&" + url.QueryEscape(message))
}

// Registration announces the device after every (re)connect
type Registration struct {
	MAC         string `json:"MAC"`
	ClientType  int    `json:"clientType"`
	Version     string `json:"version"`
	ShopCode    string `json:"shopCode"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	IP          string `json:"IP"`
	DeviceModel string `json:"deviceModel"`
	Firmware    string `json:"firmware"`
	SSID        string `json:"SSID"`
	Hardware    string `json:"hardware"`
}
