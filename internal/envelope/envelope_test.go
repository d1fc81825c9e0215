package envelope

import (
	"github.com/btcsuite/btcd/txscript"
	"testing"
)

func buildInscriptionScript(t *testing.T, contentType string, body []byte) []byte {
	t.Helper()
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(envelopeMarker)
	builder.AddFullData([]byte{tagContentType})
	builder.AddData([]byte(contentType))
	builder.AddFullData([]byte{tagBody})
	builder.AddData(body)
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	return script
}

func TestParseInputBasicInscription(t *testing.T) {
	script := buildInscriptionScript(t, "text/plain", []byte(`{"p":"drc-20","op":"deploy"}`))

	envs := ParseInput(script, 0, 4_600_000)
	if len(envs) != 1 {
		t.Fatalf("len(envs) = %d, want 1", len(envs))
	}
	env := envs[0]
	if env.ContentType != "text/plain" {
		t.Errorf("ContentType = %q", env.ContentType)
	}
	if string(env.Body) != `{"p":"drc-20","op":"deploy"}` {
		t.Errorf("Body = %q", env.Body)
	}
	if env.Cursed {
		t.Errorf("expected uncursed envelope, got reason %q", env.CurseReason)
	}
}

func TestParseInputChunkedBody(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(envelopeMarker)
	builder.AddFullData([]byte{tagBody})
	builder.AddData([]byte("hello "))
	builder.AddData([]byte("world"))
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	envs := ParseInput(script, 0, 4_600_000)
	if len(envs) != 1 {
		t.Fatalf("len(envs) = %d, want 1", len(envs))
	}
	if string(envs[0].Body) != "hello world" {
		t.Errorf("Body = %q, want %q", envs[0].Body, "hello world")
	}
}

func TestParseInputUnrecognizedEvenTagCurses(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(envelopeMarker)
	builder.AddFullData([]byte{98}) // even, unrecognized
	builder.AddData([]byte("x"))
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	envs := ParseInput(script, 0, 4_600_000)
	if len(envs) != 1 {
		t.Fatalf("len(envs) = %d, want 1", len(envs))
	}
	if !envs[0].Cursed || envs[0].CurseReason != "unrecognized_even_tag" {
		t.Errorf("envelope = %+v, want cursed unrecognized_even_tag", envs[0])
	}
}

func TestParseInputNoEnvelopeYieldsNone(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddData([]byte{1, 2, 3})
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	envs := ParseInput(script, 0, 4_600_000)
	if len(envs) != 0 {
		t.Errorf("len(envs) = %d, want 0", len(envs))
	}
}

func TestParseInputMultipleEnvelopesBeforeJubileeUncursed(t *testing.T) {
	a := buildInscriptionScript(t, "text/plain", []byte("first"))
	b := buildInscriptionScript(t, "text/plain", []byte("second"))
	script := append(append([]byte{}, a...), b...)

	envs := ParseInput(script, 100, 4_600_000)
	if len(envs) != 2 {
		t.Fatalf("len(envs) = %d, want 2", len(envs))
	}
	if string(envs[0].Body) != "first" || string(envs[1].Body) != "second" {
		t.Errorf("envs = %+v", envs)
	}
	if envs[0].EnvelopeIndex != 0 || envs[1].EnvelopeIndex != 1 {
		t.Errorf("envelope indices = %d, %d", envs[0].EnvelopeIndex, envs[1].EnvelopeIndex)
	}
	if envs[0].Cursed || envs[1].Cursed {
		t.Errorf("envs = %+v, want uncursed before jubilee height", envs)
	}
}

func TestParseInputMultipleEnvelopesAfterJubileeCursesExtras(t *testing.T) {
	a := buildInscriptionScript(t, "text/plain", []byte("first"))
	b := buildInscriptionScript(t, "text/plain", []byte("second"))
	script := append(append([]byte{}, a...), b...)

	envs := ParseInput(script, 4_600_000, 4_600_000)
	if len(envs) != 2 {
		t.Fatalf("len(envs) = %d, want 2", len(envs))
	}
	if envs[0].Cursed {
		t.Errorf("first envelope = %+v, want uncursed", envs[0])
	}
	if !envs[1].Cursed || envs[1].CurseReason != "multiple_envelopes_after_height" {
		t.Errorf("second envelope = %+v, want cursed multiple_envelopes_after_height", envs[1])
	}
}
