// Package benchmark provides performance benchmarks for storyline.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run with longer histories:
//
//	go test -bench=BenchmarkDelta -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Compare results:
//
//	go test -bench=. -benchmem -count=5 ./internal/tests/benchmark/... | tee bench.txt
//	benchstat old.txt new.txt
package benchmark
