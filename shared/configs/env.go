package configs

import "os"

var Envs = struct {
	FRONTEND_ORIGIN  string
	JWT_KEY          []byte
	POSTGRES_URL     string
	GIN_MODE         string
	PORT             string
	EXECUTOR_URL     string
	EXECUTOR_API_KEY string
}{
	FRONTEND_ORIGIN:  os.Getenv("FRONTEND_ORIGIN"),
	JWT_KEY:          []byte(os.Getenv("JWT_KEY")),
	POSTGRES_URL:     os.Getenv("POSTGRES_URL"),
	GIN_MODE:         os.Getenv("GIN_MODE"),
	PORT:             os.Getenv("PORT"),
	EXECUTOR_URL:     os.Getenv("EXECUTOR_URL"),
	EXECUTOR_API_KEY: os.Getenv("EXECUTOR_API_KEY"),
}
