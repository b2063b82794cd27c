package http

import "embed"

// staticFiles стили и websocket клиент дашборда
//
//go:embed static
var staticFiles embed.FS
