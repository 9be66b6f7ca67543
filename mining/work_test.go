package mining

import (
	"math/big"
	"testing"
)

func TestDifficultyToTarget(t *testing.T) {
	// Difficulty one maps to 2^256, which does not fit the target, so the
	// target saturates at its maximum.
	var maxTarget [TargetSize]byte
	for i := range maxTarget {
		maxTarget[i] = 0xff
	}
	tests := []struct {
		name       string
		difficulty *big.Int
		want       [TargetSize]byte
	}{
		{"nil", nil, maxTarget},
		{"zero", big.NewInt(0), maxTarget},
		{"negative", big.NewInt(-5), maxTarget},
		{"one", big.NewInt(1), maxTarget},
		{"two", big.NewInt(2), func() [TargetSize]byte {
			var target [TargetSize]byte
			target[0] = 0x80
			return target
		}()},
		{"maximum", new(big.Int).Lsh(big.NewInt(1), 256), func() [TargetSize]byte {
			var target [TargetSize]byte
			target[TargetSize-1] = 0x01
			return target
		}()},
	}
	for _, test := range tests {
		got := difficultyToTarget(test.difficulty)
		if got != test.want {
			t.Errorf("%s: got %x, want %x", test.name, got, test.want)
		}
	}
}

func TestWorkWithoutNotify(t *testing.T) {
	work := &MinerWork{
		BlockHashForMergedMining: testHash(1),
		FeesPaidToMiner:          big.NewInt(42),
		Notify:                   true,
		ParentBlockHash:          testHash(2),
	}
	work.Target[0] = 0x80

	cleared := work.withoutNotify()
	if cleared.Notify {
		t.Fatalf("withoutNotify left the notify flag set")
	}
	if cleared.BlockHashForMergedMining != work.BlockHashForMergedMining ||
		cleared.Target != work.Target ||
		cleared.FeesPaidToMiner.Cmp(work.FeesPaidToMiner) != 0 ||
		cleared.ParentBlockHash != work.ParentBlockHash {
		t.Fatalf("withoutNotify did not preserve the work fields")
	}
	if !work.Notify {
		t.Fatalf("withoutNotify mutated the original work")
	}
}
