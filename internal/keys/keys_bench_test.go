package keys

import "testing"

func BenchmarkFor(b *testing.B) {
	b.ReportAllocs()
	names := []string{"email_send", "prune_blocks", "report_storage"}
	var sink Queue
	for i := 0; i < b.N; i++ {
		sink = For("default", names)
	}
	_ = sink
}

func BenchmarkUniqueField(b *testing.B) {
	b.ReportAllocs()
	var s string
	for i := 0; i < b.N; i++ {
		s = UniqueField("prune_blocks", "bucket-42")
	}
	_ = s
}
