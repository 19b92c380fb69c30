package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Morph merges markup into doc in place. Nodes that match by type, tag and
// id keep their identity; only differing attributes, text and unmatched
// subtrees change.
func Morph(doc *Document, markup string) error {
	if strings.TrimSpace(markup) == "" {
		return ErrEmptyMarkup
	}
	next, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	return doc.Update(func(root *html.Node, rec *Recorder) error {
		morphChildren(root, next, rec)
		return nil
	})
}

// Merger applies Morph; it satisfies the reload package's merge capability.
type Merger struct{}

// Merge calls Morph.
func (Merger) Merge(doc *Document, markup string) error {
	return Morph(doc, markup)
}

// Replacer discards the current tree and installs the parsed markup, for
// pages whose scripts cannot tolerate in-place patching.
type Replacer struct{}

// Merge parses markup and calls Document.Replace.
func (Replacer) Merge(doc *Document, markup string) error {
	if strings.TrimSpace(markup) == "" {
		return ErrEmptyMarkup
	}
	next, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	return doc.Replace(next)
}

func sameKind(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type != html.ElementNode {
		return true
	}
	if a.Data != b.Data || a.Namespace != b.Namespace {
		return false
	}
	aid, _ := getAttr(a, "id")
	bid, _ := getAttr(b, "id")
	return aid == bid
}

func morphNode(cur, next *html.Node, rec *Recorder) {
	switch cur.Type {
	case html.TextNode, html.CommentNode:
		if cur.Data != next.Data {
			cur.Data = next.Data
			rec.Record(Mutation{Kind: MutationText, Node: cur, Value: cur.Data})
		}
	case html.DoctypeNode:
		cur.Data = next.Data
		cur.Attr = next.Attr
	case html.ElementNode:
		morphAttrs(cur, next, rec)
		morphChildren(cur, next, rec)
	default:
		morphChildren(cur, next, rec)
	}
}

func morphAttrs(cur, next *html.Node, rec *Recorder) {
	for _, a := range next.Attr {
		if a.Namespace != "" {
			continue
		}
		if v, ok := getAttr(cur, a.Key); !ok || v != a.Val {
			setAttr(cur, a.Key, a.Val)
			rec.Record(Mutation{Kind: MutationAttr, Node: cur, Attr: a.Key, Value: a.Val})
		}
	}

	kept := cur.Attr[:0]
	for _, a := range cur.Attr {
		if _, ok := getAttr(next, a.Key); ok || a.Namespace != "" {
			kept = append(kept, a)
			continue
		}
		rec.Record(Mutation{Kind: MutationAttr, Node: cur, Attr: a.Key})
	}
	cur.Attr = kept
}

func morphChildren(curParent, nextParent *html.Node, rec *Recorder) {
	cur := curParent.FirstChild
	for next := nextParent.FirstChild; next != nil; {
		following := next.NextSibling

		if cur != nil && sameKind(cur, next) {
			morphNode(cur, next, rec)
			cur = cur.NextSibling
		} else if match := keyedMatch(cur, next); match != nil {
			for cur != match {
				stale := cur.NextSibling
				curParent.RemoveChild(cur)
				rec.Record(Mutation{Kind: MutationRemove, Node: cur})
				cur = stale
			}
			morphNode(match, next, rec)
			cur = match.NextSibling
		} else {
			nextParent.RemoveChild(next)
			curParent.InsertBefore(next, cur)
			rec.Record(Mutation{Kind: MutationInsert, Node: next})
		}

		next = following
	}

	for cur != nil {
		stale := cur.NextSibling
		curParent.RemoveChild(cur)
		rec.Record(Mutation{Kind: MutationRemove, Node: cur})
		cur = stale
	}
}

// keyedMatch finds a later sibling of cur with the same tag and id as next.
func keyedMatch(cur, next *html.Node) *html.Node {
	if next.Type != html.ElementNode {
		return nil
	}
	id, ok := getAttr(next, "id")
	if !ok || id == "" {
		return nil
	}
	for n := cur; n != nil; n = n.NextSibling {
		if sameKind(n, next) {
			return n
		}
	}
	return nil
}
