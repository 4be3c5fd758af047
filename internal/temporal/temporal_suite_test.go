package temporal

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTemporalSpecs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stage notification workflow")
}
