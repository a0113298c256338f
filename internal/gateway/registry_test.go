package gateway

import (
	"sort"
	"testing"
)

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	r := NewRegistry()

	r.Subscribe("c1", "pk1")
	r.Subscribe("c1", "pk2")
	r.Subscribe("c2", "pk1")

	conns := r.Connections("pk1")
	sort.Strings(conns)
	if len(conns) != 2 || conns[0] != "c1" || conns[1] != "c2" {
		t.Fatalf("connections = %v", conns)
	}

	topics := r.Topics("c1")
	sort.Strings(topics)
	if len(topics) != 2 || topics[0] != "pk1" || topics[1] != "pk2" {
		t.Fatalf("topics = %v", topics)
	}

	r.Unsubscribe("c1", "pk1")
	if conns := r.Connections("pk1"); len(conns) != 1 || conns[0] != "c2" {
		t.Fatalf("connections after unsubscribe = %v", conns)
	}
	if topics := r.Topics("c1"); len(topics) != 1 || topics[0] != "pk2" {
		t.Fatalf("topics after unsubscribe = %v", topics)
	}
}

func TestRegistrySubscribeIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Subscribe("c1", "pk1")
	r.Subscribe("c1", "pk1")

	if conns := r.Connections("pk1"); len(conns) != 1 {
		t.Fatalf("connections = %v, want single entry", conns)
	}
}

func TestRegistryDropReleasesAll(t *testing.T) {
	r := NewRegistry()

	r.Subscribe("c1", "pk1")
	r.Subscribe("c1", "pk2")
	r.Subscribe("c2", "pk1")

	r.Drop("c1")

	if conns := r.Connections("pk1"); len(conns) != 1 || conns[0] != "c2" {
		t.Fatalf("pk1 connections after drop = %v", conns)
	}
	if conns := r.Connections("pk2"); len(conns) != 0 {
		t.Fatalf("pk2 connections after drop = %v", conns)
	}
	if topics := r.Topics("c1"); len(topics) != 0 {
		t.Fatalf("topics after drop = %v", topics)
	}
}

func TestRegistryUnsubscribeUnknown(t *testing.T) {
	r := NewRegistry()

	// must not panic or create entries
	r.Unsubscribe("ghost", "pk1")
	if conns := r.Connections("pk1"); len(conns) != 0 {
		t.Fatalf("connections = %v", conns)
	}
}
