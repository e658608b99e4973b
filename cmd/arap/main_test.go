package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/arap/internal/app"
	"github.com/odyssey-erp/arap/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	require.Equal(t, "1", os.Getenv(guard.EnvTestMode))
	app.RefreshTestMode()
	require.True(t, app.InTestMode())

	main()
}
