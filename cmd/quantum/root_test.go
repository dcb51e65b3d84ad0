package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vimagination.zapto.org/quantum"
)

func TestOverlay(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("target", "server")
	viper.Set("treeshake", true)
	viper.Set("split", []string{"admin=default/admin.js"})
	viper.Set("env", []string{"NODE_ENV=production"})

	c := &quantum.Config{Target: "browser", Hoisting: true, Env: map[string]string{"A": "1"}}

	require.NoError(t, overlay(c))

	assert.Equal(t, &quantum.Config{
		Target:    "server",
		Bundle:    "bundle",
		TreeShake: true,
		Hoisting:  true,
		Env:       map[string]string{"A": "1", "NODE_ENV": "production"},
		Splits:    []quantum.SplitConfig{{Name: "admin", Entry: "default/admin.js"}},
	}, c)

	viper.Set("split", []string{"admin"})

	assert.ErrorIs(t, overlay(new(quantum.Config)), quantum.ErrInvalidSplit)
}
