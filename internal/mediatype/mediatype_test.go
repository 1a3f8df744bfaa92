package mediatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBestPicksHighestQ(t *testing.T) {
	assert.Equal(t, "text/html", Best("text/html;q=0.9,application/json;q=0.8"))
}

func TestBestBreaksTiesOnOrder(t *testing.T) {
	assert.Equal(t, "a/a", Best("a/a,b/b"))
}

func TestBestEmpty(t *testing.T) {
	assert.Equal(t, "", Best(""))
}

func TestBestWildcard(t *testing.T) {
	assert.Equal(t, "*/*", Best("*/*"))
}
