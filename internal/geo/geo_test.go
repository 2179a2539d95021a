package geo

import "testing"

type countingResolver struct {
	table   map[string]Location
	lookups int
}

func (r *countingResolver) Lookup(ip string) (Location, bool) {
	r.lookups++
	loc, ok := r.table[ip]
	return loc, ok
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]Location{
		"198.51.100.1": {Country: "US", City: "New York"},
	})
	loc, ok := r.Lookup("198.51.100.1")
	if !ok || loc.City != "New York" {
		t.Fatalf("lookup = %+v ok=%v", loc, ok)
	}
	if _, ok := r.Lookup("10.0.0.1"); ok {
		t.Fatalf("unknown address must miss")
	}
}

func TestCachedResolverMemoizesHitsAndMisses(t *testing.T) {
	inner := &countingResolver{table: map[string]Location{
		"198.51.100.1": {Country: "US", City: "New York"},
	}}
	r, err := NewCachedResolver(inner, 8)
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, ok := r.Lookup("198.51.100.1"); !ok {
			t.Fatalf("cached hit lost")
		}
		if _, ok := r.Lookup("10.0.0.1"); ok {
			t.Fatalf("cached miss turned into a hit")
		}
	}
	if inner.lookups != 2 {
		t.Fatalf("inner resolver hit %d times, want 2", inner.lookups)
	}
}
