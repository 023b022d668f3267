package idxtree

import (
	"encoding/binary"
	"testing"
)

func benchKey(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i)*0x9E3779B97F4A7C15)
	return b
}

func BenchmarkAddRecord(b *testing.B) {
	tree, err := NewTree(Config{PageSize: DefaultPageSize, KeySize: 8})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tree.AddRecord(benchKey(i), uint32(i), 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindRecord(b *testing.B) {
	const n = 100000
	tree, err := NewTree(Config{PageSize: DefaultPageSize, KeySize: 8})
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := tree.AddRecord(benchKey(i), uint32(i), 0); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, found, err := tree.FindRecord(benchKey(i % n)); err != nil || !found {
			b.Fatalf("key %d: found=%t err=%v", i%n, found, err)
		}
	}
}
