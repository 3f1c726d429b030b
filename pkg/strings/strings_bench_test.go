package strings

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func keywordIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("kw-%08d", i)
	}
	return ids
}

func BenchmarkJoin(b *testing.B) {
	ids := keywordIDs(100)

	b.Run("naive", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			out := ""
			for _, id := range ids {
				out += id + ","
			}
			_ = out
		}
	})

	b.Run("stdlib", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = strings.Join(ids, ",")
		}
	})

	b.Run("pooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = JoinPooled(ids, ",")
		}
	})

	b.Run("concat", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = Concat(ids...)
		}
	})
}

func BenchmarkSprintf(b *testing.B) {
	const format = "profile %s page %d of %d (archived=%t)"

	b.Run("stdlib", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = fmt.Sprintf(format, "ENTITY123", i, 400, false)
		}
	})

	b.Run("pooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = Sprintf(format, "ENTITY123", i, 400, false)
		}
	})
}

func BenchmarkURLBuilder(b *testing.B) {
	const base = "https://advertising-api.amazon.com/v2/sp/keywords"

	b.Run("concat", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = base + "?startIndex=" + strconv.Itoa(i*100) + "&count=100&stateFilter=enabled"
		}
	})

	b.Run("builder", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			ub := NewURLBuilder(base)
			ub.AddParamInt("startIndex", i*100).
				AddParamInt("count", 100).
				AddParam("stateFilter", "enabled")
			_ = ub.String()
			ub.Close()
		}
	})
}

func BenchmarkBuilderPool(b *testing.B) {
	ids := keywordIDs(50)

	b.Run("pooled", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				builder := GetBuilder(Small)
				for _, id := range ids {
					builder.WriteString(id)
					builder.WriteByte(',')
				}
				out := Clone(builder.String())
				PutBuilder(builder, Small)
				_ = out
			}
		})
	})

	b.Run("fresh", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				builder := NewBuilder(1 << 10)
				for _, id := range ids {
					builder.WriteString(id)
					builder.WriteByte(',')
				}
				_ = builder.String()
			}
		})
	})
}
