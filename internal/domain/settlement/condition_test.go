package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConditions(t *testing.T) {
	t.Run("null and not null", func(t *testing.T) {
		conds, err := ParseConditions(map[string]string{
			"exported_at":  "null",
			"confirmed_at": "!null",
		})
		require.NoError(t, err)
		require.Len(t, conds, 2)

		// sorted by field name
		assert.Equal(t, "confirmed_at", conds[0].Field.Name)
		assert.Equal(t, OpNotNull, conds[0].Op)
		assert.Equal(t, "exported_at", conds[1].Field.Name)
		assert.Equal(t, OpIsNull, conds[1].Op)
	})

	t.Run("closed time range", func(t *testing.T) {
		conds, err := ParseConditions(map[string]string{
			"document_date": "2024-01-01,2024-01-31 23:59:59",
		})
		require.NoError(t, err)
		require.Len(t, conds, 1)

		c := conds[0]
		assert.Equal(t, OpBetween, c.Op)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), c.Lower)
		assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), c.Upper)
	})

	t.Run("half-open ranges", func(t *testing.T) {
		conds, err := ParseConditions(map[string]string{"nominal_amount": "100,"})
		require.NoError(t, err)
		assert.Equal(t, OpGTE, conds[0].Op)
		assert.True(t, conds[0].Lower.(decimal.Decimal).Equal(decimal.NewFromInt(100)))

		conds, err = ParseConditions(map[string]string{"nominal_amount": ",250.5"})
		require.NoError(t, err)
		assert.Equal(t, OpLTE, conds[0].Op)
		assert.Nil(t, conds[0].Lower)
	})

	t.Run("equality with typed values", func(t *testing.T) {
		id := uuid.New()
		conds, err := ParseConditions(map[string]string{
			"counterpart_id": id.String(),
			"is_domestic":    "false",
		})
		require.NoError(t, err)
		assert.Equal(t, id, conds[0].Value)
		assert.Equal(t, "counterpart_is_domestic", conds[1].Field.Column)
		assert.Equal(t, false, conds[1].Value)
	})

	t.Run("string fields keep commas", func(t *testing.T) {
		conds, err := ParseConditions(map[string]string{"counterpart_name": "Acme, Ltd"})
		require.NoError(t, err)
		assert.Equal(t, OpEqual, conds[0].Op)
		assert.Equal(t, "Acme, Ltd", conds[0].Value)
	})

	t.Run("rejects unknown field", func(t *testing.T) {
		_, err := ParseConditions(map[string]string{"password": "x"})
		assert.ErrorContains(t, err, "cannot be filtered")
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		_, err := ParseConditions(map[string]string{"document_date": "yesterday"})
		assert.Error(t, err)

		_, err = ParseConditions(map[string]string{"nominal_amount": ","})
		assert.Error(t, err)

		_, err = ParseConditions(map[string]string{"is_domestic": "maybe"})
		assert.Error(t, err)
	})
}
