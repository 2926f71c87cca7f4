package main

//go:generate swag init -g cmd/settlementd/main.go -o docs

// @title           Pollboard Settlement API
// @version         0.1.0
// @description     Betting poll settlement triggers, progress, and logs.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
