package ticket

import (
	"context"
	"testing"
)

func TestMemorySequenceFloor(t *testing.T) {
	seq := NewMemorySequence(0)
	n, err := seq.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != DefaultFloor+1 {
		t.Errorf("first number = %d, want %d", n, DefaultFloor+1)
	}
}

func TestMemorySequenceMonotonic(t *testing.T) {
	seq := NewMemorySequence(7000)
	prev := int64(0)
	for i := 0; i < 5; i++ {
		n, err := seq.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n <= prev {
			t.Fatalf("number %d not above previous %d", n, prev)
		}
		prev = n
	}

	seq.Observe(9000)
	n, _ := seq.Next(context.Background())
	if n != 9001 {
		t.Errorf("after Observe(9000) got %d, want 9001", n)
	}
	seq.Observe(100)
	n, _ = seq.Next(context.Background())
	if n != 9002 {
		t.Errorf("Observe must never lower the counter, got %d", n)
	}
}

func TestIssuerFormat(t *testing.T) {
	iss := NewIssuer("", NewMemorySequence(5000))
	id, err := iss.Issue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "SR-5001" {
		t.Errorf("Issue() = %q, want SR-5001", id)
	}
}
