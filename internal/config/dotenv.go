package config

import "github.com/joho/godotenv"

// loadDotenv is split out from Load so the godotenv import sits in one
// place; it never overrides a variable already set in the environment.
func loadDotenv() error {
	return godotenv.Load()
}
