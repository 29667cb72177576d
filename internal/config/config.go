// Package config loads the engine's runtime configuration from a .env file
// (if present) layered under the process environment, the same pattern
// HASHER's pipeline config packages use for their own settings.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config is everything cmd/overwitch needs to open a device and size its
// transfers, before any flag overrides from the command line.
type Config struct {
	Bus               uint8
	Address           uint8
	BlocksPerTransfer int
	FramesPerBlock    int
	DebugLevel        int
}

// defaults match engine.c's own compiled-in constants for a typical
// Elektron class-compliant device.
func defaults() Config {
	return Config{
		Bus:               1,
		Address:           2,
		BlocksPerTransfer: 8,
		FramesPerBlock:    7,
		DebugLevel:        0,
	}
}

// Load reads OVERWITCH_* environment variables, loading a .env file first
// if one exists in the working directory. Missing or malformed values fall
// back to defaults(); Load never fails outright, since every setting has a
// usable default.
func Load() Config {
	if err := loadDotenv(); err != nil {
		log.Println("config: no .env file found, using process environment")
	}

	cfg := defaults()
	cfg.Bus = envUint8("OVERWITCH_BUS", cfg.Bus)
	cfg.Address = envUint8("OVERWITCH_ADDRESS", cfg.Address)
	cfg.BlocksPerTransfer = envInt("OVERWITCH_BLOCKS_PER_TRANSFER", cfg.BlocksPerTransfer)
	cfg.FramesPerBlock = envInt("OVERWITCH_FRAMES_PER_BLOCK", cfg.FramesPerBlock)
	cfg.DebugLevel = envInt("OVERWITCH_DEBUG", cfg.DebugLevel)
	return cfg
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %d", name, v, def)
		return def
	}
	return n
}

func envUint8(name string, def uint8) uint8 {
	n := envInt(name, int(def))
	if n < 0 || n > 255 {
		log.Printf("config: %s=%d out of range, using default %d", name, n, def)
		return def
	}
	return uint8(n)
}
