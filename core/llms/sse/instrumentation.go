package sse

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/siva/core/llms/sse"

var logger = otelslog.NewLogger(scopeName)
