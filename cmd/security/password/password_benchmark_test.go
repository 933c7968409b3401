package password

import "testing"

const benchPassword = "forum-member-2024"

func benchConfigs() map[string]Config {
	def := DefaultConfig()
	dev := DefaultConfig()
	dev.Params.MemoryKiB = 8 * 1024
	dev.Params.Iterations = 1
	dev.Params.Parallelism = 1
	return map[string]Config{"default": def, "dev": dev}
}

func BenchmarkHash(b *testing.B) {
	for name, cfg := range benchConfigs() {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := cfg.Hash(benchPassword); err != nil {
					b.Fatalf("Hash: %v", err)
				}
			}
		})
	}
}

// BenchmarkLoginVerify measures the per-login cost of a successful match.
func BenchmarkLoginVerify(b *testing.B) {
	for name, cfg := range benchConfigs() {
		h, err := cfg.Hash(benchPassword)
		if err != nil {
			b.Fatalf("Hash: %v", err)
		}
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				ok, err := cfg.Verify(h, benchPassword)
				if err != nil || !ok {
					b.Fatalf("Verify: ok=%v err=%v", ok, err)
				}
			}
		})
	}
}
