package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentDir(t *testing.T) {
	cases := map[string]string{
		"/usr/local/bin/bench-agent": "/usr/local/bin",
		"/bin/agent":                 "/bin",
		"relative/path/file":         "relative/path",
		"no-slash":                   ".",
	}
	for path, want := range cases {
		assert.Equal(t, want, parentDir(path), "parentDir(%q)", path)
	}
}
