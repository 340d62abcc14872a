package cmdtest

import (
	"testing"
)

func TestMain(m *testing.M) {
	Main(m)
}

func TestVfsbundle(t *testing.T) {
	Run(t, "testdata/vfsbundle")
}
