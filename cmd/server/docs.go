package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           No-JS Fingerprint API
// @version         0.1.0
// @description     Passive browser fingerprinting through CSS probes and request headers.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
