package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomer_PlaceholderData(t *testing.T) {
	t.Parallel()

	sex := "female"
	birth := time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC)
	c := &Customer{
		Email:     "ann@example.com",
		FirstName: "Ann",
		LastName:  "Kovacs",
		Sex:       &sex,
		BirthDate: &birth,
	}

	assert.Equal(t, map[string]string{
		"first_name": "Ann",
		"last_name":  "Kovacs",
		"full_name":  "Ann Kovacs",
		"email":      "ann@example.com",
		"sex":        "female",
		"birth_date": "1990-04-12",
	}, c.PlaceholderData())
}

func TestCustomer_PlaceholderData_MissingOptionalsAreEmpty(t *testing.T) {
	t.Parallel()

	c := &Customer{Email: "b@example.com", FirstName: "Ben", LastName: "Toth"}
	data := c.PlaceholderData()

	assert.Equal(t, "", data["sex"])
	assert.Equal(t, "", data["birth_date"])
}
