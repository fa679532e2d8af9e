package js

import (
	"strings"
	"testing"
)

func TestParseMarkup(t *testing.T) {
	r, _ := newTestRuntime(t)

	got := mustExecute(t, r, `
		var roots = document.parseMarkup('<div id="menu"><button id="save"></button><button id="quit"></button></div><p></p>');
		var menu = roots[0];
		var save = menu.firstChild;
		[roots.length, menu.nodeName, menu.id, save.id, save.nextSibling.id,
		 save.parentNode === menu, roots[1].nodeName, menu instanceof Node].join(",");
	`)
	want := "2,DIV,menu,save,quit,true,P,true"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseMarkupPropagation(t *testing.T) {
	r, _ := newTestRuntime(t)

	got := mustExecute(t, r, `
		var tree = document.parseMarkup('<ul><li><a></a></li></ul>')[0];
		var path = [];
		var a = tree.firstChild.firstChild;
		[tree, tree.firstChild, a].forEach(function (n) {
			n.addEventListener("tap", function (e) { path.push(e.currentTarget.nodeName); });
		});
		document.body.appendChild(tree);
		a.dispatchEvent(new Event("tap"));
		path.join(">");
	`)
	if got != "A>LI>UL" {
		t.Errorf("got %q, want A>LI>UL", got)
	}
}

func TestParseMarkupArguments(t *testing.T) {
	r, _ := newTestRuntime(t)

	_, err := r.Execute(`document.parseMarkup()`)
	if err == nil || !strings.Contains(err.Error(), "1 argument required") {
		t.Errorf("expected argument error, got %v", err)
	}
	if got := mustExecute(t, r, `document.parseMarkup("text only").length`); got != "0" {
		t.Errorf("got %q, want 0", got)
	}
}

func TestLoadMarkupFromGo(t *testing.T) {
	r, h := newTestRuntime(t)

	roots, err := r.LoadMarkup(`<canvas id="c"></canvas>`)
	if err != nil {
		t.Fatalf("LoadMarkup failed: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("roots = %d, want 1", len(roots))
	}
	target := r.Target(roots[0])
	if target == nil {
		t.Fatal("root is not a target")
	}
	r.Context().FlushCommands()
	if name := h.TypeName(target.ID()); name != "CANVAS" {
		t.Errorf("host type name = %q, want CANVAS", name)
	}
}
