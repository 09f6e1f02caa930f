package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Apply(t *testing.T) {
	t.Parallel()

	keys := []string{
		"exports/",
		"exports/2024/a.parquet",
		"exports/2024/b.csv",
		"exports/c.parquet",
		"other/d.parquet",
	}

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"no filter drops dirs", Filter{}, []string{
			"exports/2024/a.parquet", "exports/2024/b.csv", "exports/c.parquet", "other/d.parquet",
		}},
		{"prefix", Filter{Prefix: "exports/"}, []string{
			"exports/2024/a.parquet", "exports/2024/b.csv", "exports/c.parquet",
		}},
		{"recursive glob", Filter{Pattern: "**/*.parquet"}, []string{
			"exports/2024/a.parquet", "exports/c.parquet", "other/d.parquet",
		}},
		{"prefix and shallow glob", Filter{Prefix: "exports/", Pattern: "exports/*.parquet"}, []string{
			"exports/c.parquet",
		}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.f.Apply(keys))
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Filter{}.Validate())
	assert.NoError(t, Filter{Pattern: "**/*.parquet"}.Validate())
	assert.Error(t, Filter{Pattern: "exports/[a-"}.Validate())
}
