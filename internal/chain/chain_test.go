package chain

import "testing"

func TestGetDefaultsToMainnet(t *testing.T) {
	p := Get(Mainnet)
	if p.PubKeyHashAddrID != 0x1E {
		t.Errorf("PubKeyHashAddrID = 0x%02x, want 0x1E", p.PubKeyHashAddrID)
	}
	if p.ScriptHashAddrID != 0x16 {
		t.Errorf("ScriptHashAddrID = 0x%02x, want 0x16", p.ScriptHashAddrID)
	}
}

func TestGetTestnet(t *testing.T) {
	p := Get(Testnet)
	if p.PubKeyHashAddrID != 0x71 {
		t.Errorf("PubKeyHashAddrID = 0x%02x, want 0x71", p.PubKeyHashAddrID)
	}
}

func TestGetUnknownNetworkFallsBackToMainnet(t *testing.T) {
	p := Get(Network("bogus"))
	if p.Name != "mainnet" {
		t.Errorf("Name = %s, want mainnet", p.Name)
	}
}
