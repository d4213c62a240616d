package kv

import "testing"

func TestParseTextBasic(t *testing.T) {
	src := `
"appinfo"
{
	"common"
	{
		"name" "Half-Life 3"
	}
	"depots"
	{
		"1" { "manifests" { "public" "123" } }
		"workshopdepot" "2"
	}
}
`
	root := ParseText([]byte(src))
	app, ok := root.Child("appinfo")
	if !ok {
		t.Fatal("missing appinfo node")
	}
	name, ok := app.PathString("common", "name")
	if !ok || name != "Half-Life 3" {
		t.Fatalf("name = %q, ok=%v", name, ok)
	}
	depots, ok := app.Child("depots")
	if !ok {
		t.Fatal("missing depots node")
	}
	d1, ok := depots.Child("1")
	if !ok {
		t.Fatal("missing depot 1")
	}
	if _, ok := d1.Child("manifests"); !ok {
		t.Fatal("depot 1 missing manifests child")
	}
	if v, ok := depots.String("workshopdepot"); !ok || v != "2" {
		t.Fatalf("workshopdepot = %q, ok=%v", v, ok)
	}
}

func TestParseTextTruncated(t *testing.T) {
	// missing closing braces and a dangling key
	src := `"a" { "b" "c"`
	root := ParseText([]byte(src))
	a, ok := root.Child("a")
	if !ok {
		t.Fatal("expected partial node for 'a'")
	}
	if v, ok := a.String("b"); !ok || v != "c" {
		t.Fatalf("b = %q ok=%v", v, ok)
	}
}

func encCString(s string) []byte { return append([]byte(s), 0) }

func TestParseBinaryBasic(t *testing.T) {
	var buf []byte
	buf = append(buf, binTagNode)
	buf = append(buf, encCString("depotids")...)
	buf = append(buf, binTagInt32)
	buf = append(buf, encCString("0")...)
	buf = append(buf, 0x39, 0x30, 0x00, 0x00) // 12345 LE
	buf = append(buf, binTagEnd)
	buf = append(buf, binTagString)
	buf = append(buf, encCString("name")...)
	buf = append(buf, encCString("Half-Life 3")...)

	root := ParseBinary(buf)
	depotids, ok := root.Child("depotids")
	if !ok {
		t.Fatal("missing depotids")
	}
	if v, ok := depotids.Int("0"); !ok || v != 12345 {
		t.Fatalf("depotids[0] = %d ok=%v", v, ok)
	}
	if v, ok := root.String("name"); !ok || v != "Half-Life 3" {
		t.Fatalf("name = %q ok=%v", v, ok)
	}
}

func TestParseBinaryTruncated(t *testing.T) {
	// a node tag with a name but cut off before the terminator
	var buf []byte
	buf = append(buf, binTagNode)
	buf = append(buf, encCString("depotids")...)
	buf = append(buf, binTagInt32)
	buf = append(buf, encCString("0")...)
	buf = append(buf, 0x01, 0x02) // only 2 of 4 int bytes

	root := ParseBinary(buf)
	depotids, ok := root.Child("depotids")
	if !ok {
		t.Fatal("expected partial depotids node")
	}
	if _, ok := depotids.Int("0"); ok {
		t.Fatal("expected truncated int32 to be absent, not garbage")
	}
}

func TestParseBinaryUnknownTagTerminates(t *testing.T) {
	var buf []byte
	buf = append(buf, binTagString)
	buf = append(buf, encCString("ok")...)
	buf = append(buf, encCString("yes")...)
	buf = append(buf, 0xFF) // unknown tag terminates the node
	buf = append(buf, binTagString)
	buf = append(buf, encCString("unreachable")...)
	buf = append(buf, encCString("nope")...)

	root := ParseBinary(buf)
	if v, ok := root.String("ok"); !ok || v != "yes" {
		t.Fatalf("ok = %q ok=%v", v, ok)
	}
	if _, ok := root.String("unreachable"); ok {
		t.Fatal("parsing should have stopped at the unknown tag")
	}
}
