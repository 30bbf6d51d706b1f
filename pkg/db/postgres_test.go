package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectRejectsEmptyURL(t *testing.T) {
	db, err := Connect("", Options{})
	assert.Nil(t, db)
	assert.EqualError(t, err, "database URL cannot be empty")
}
