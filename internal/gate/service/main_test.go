package service_test

import (
	"os"
	"testing"

	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
)

func TestMain(m *testing.M) {
	cryptox.SetPepper("service-test-pepper")
	os.Exit(m.Run())
}
