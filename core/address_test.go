package core

import "testing"

func TestAddressDerivationIsDeterministic(t *testing.T) {
	authority := Address(H([]byte("author")))
	a1 := SpoolAddress(authority, "doc")
	a2 := SpoolAddress(authority, "doc")
	if a1 != a2 {
		t.Fatal("SpoolAddress is not deterministic")
	}
	if a1 == SpoolAddress(authority, "other-doc") {
		t.Fatal("different names collided")
	}
}

func TestDerivedAddressesAreDistinctNamespaces(t *testing.T) {
	authority := Address(H([]byte("author")))
	spool := SpoolAddress(authority, "doc")
	writer := WriterAddress(spool)
	miner := MinerAddress(authority, "doc")
	if spool == writer || spool == miner || writer == miner {
		t.Fatal("seed namespaces collided across account kinds")
	}
}

func TestSingletonAddressesAreFixed(t *testing.T) {
	if ArchiveAddress() != ArchiveAddress() {
		t.Fatal("ArchiveAddress not stable")
	}
	if ArchiveAddress() == EpochAddress() {
		t.Fatal("Archive and Epoch addresses collided")
	}
}

func TestHashIsOrderSensitive(t *testing.T) {
	if H([]byte("a"), []byte("b")) == H([]byte("b"), []byte("a")) {
		t.Fatal("H ignored argument order")
	}
}
