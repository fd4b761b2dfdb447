/*
	wows-replays: World of Warships replay parsing library (golang)
	Copyright (C) 2026 lkolbly

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package rpc

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Flag is a property's distribution flag. It decides whether the client ever
// sees the property, which in turn decides whether the property occupies a
// wire index.
//
//go:generate stringer --type Flag
type Flag uint8

const (
	FlagUnknown Flag = iota
	FlagAllClients
	FlagBaseAndClient
	FlagCellPrivate
	FlagCellPublic
	FlagCellPublicAndOwn
	FlagOtherClients
	FlagOwnClient
	FlagBase
)

func parseFlag(s string) Flag {
	switch strings.TrimSpace(s) {
	case "ALL_CLIENTS":
		return FlagAllClients
	case "BASE_AND_CLIENT":
		return FlagBaseAndClient
	case "CELL_PRIVATE":
		return FlagCellPrivate
	case "CELL_PUBLIC":
		return FlagCellPublic
	case "CELL_PUBLIC_AND_OWN":
		return FlagCellPublicAndOwn
	case "OTHER_CLIENTS":
		return FlagOtherClients
	case "OWN_CLIENT":
		return FlagOwnClient
	case "BASE":
		return FlagBase
	default:
		return FlagUnknown
	}
}

// clientVisible reports whether a property with this flag is replicated to
// clients and therefore indexed on the wire.
func (f Flag) clientVisible() bool {
	switch f {
	case FlagAllClients, FlagBaseAndClient, FlagOtherClients, FlagOwnClient, FlagCellPublicAndOwn:
		return true
	}
	return false
}

// cellVisible reports whether a property with this flag lives in the cell
// replication set targeted by nested property updates on internal indices.
func (f Flag) cellVisible() bool {
	switch f {
	case FlagCellPrivate, FlagCellPublic, FlagCellPublicAndOwn:
		return true
	}
	return false
}

type Property struct {
	Name string
	Type ArgType
	Flag Flag
}

type Method struct {
	Name string
	Args []ArgType
	// variableLengthHeaderSize from the definition file, 1 when absent.
	// It pads the method's ordering key, not the payload.
	VariableLengthHeaderSize int
}

// SortSize is the method's ordering key: the combined footprint of its
// arguments plus the variable-length header allowance. The header is added
// outside the saturation, so variable-length overloads still order by
// header size.
func (m Method) SortSize() int {
	size := 0
	for _, a := range m.Args {
		size = saturatingAdd(size, a.SortSize())
	}
	return size + m.VariableLengthHeaderSize
}

// EntitySpec is one entity class out of scripts/entities.xml, with its
// properties and exposed methods ordered the way the client indexes them.
type EntitySpec struct {
	Name string
	// Properties are the client-visible properties in wire index order.
	Properties []Property
	// InternalProperties are the cell-visibility properties in declaration
	// order; nested property updates on internal indices target these.
	InternalProperties []Property
	// ClientMethods are in wire index order.
	ClientMethods []Method
	BaseMethods   []Method
	CellMethods   []Method
}

// typeAliases maps alias names from alias.xml to their resolved types.
type typeAliases map[string]ArgType

// xmlNode is a generic element tree. The definition files use element names
// as keys and nest arbitrarily, which maps poorly onto static structs.
type xmlNode struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func (n *xmlNode) child(name string) *xmlNode {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			return &n.Children[i]
		}
	}
	return nil
}

func (n *xmlNode) text() string {
	return strings.TrimSpace(n.Text)
}

func parseXMLFile(path string) (*xmlNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &root, nil
}

var basicTypes = map[string]PrimitiveType{
	"UINT8":          PrimitiveUint8,
	"UINT16":         PrimitiveUint16,
	"UINT32":         PrimitiveUint32,
	"UINT64":         PrimitiveUint64,
	"INT8":           PrimitiveInt8,
	"INT16":          PrimitiveInt16,
	"INT32":          PrimitiveInt32,
	"INT64":          PrimitiveInt64,
	"FLOAT32":        PrimitiveFloat32,
	"FLOAT":          PrimitiveFloat32,
	"FLOAT64":        PrimitiveFloat64,
	"VECTOR2":        PrimitiveVector2,
	"VECTOR3":        PrimitiveVector3,
	"STRING":         PrimitiveString,
	"UNICODE_STRING": PrimitiveUnicodeString,
	"BLOB":           PrimitiveBlob,
	// Opaque reference types travel as blobs.
	"MAILBOX": PrimitiveBlob,
	"PYTHON":  PrimitiveBlob,
	// USER_TYPE carries a game-defined codec; the raw bytes are kept.
	"USER_TYPE": PrimitiveBlob,
}

// ParseTypeNode resolves one <Type> element (or a type-valued element such
// as a method argument) against the alias table.
func ParseTypeNode(n *xmlNode, aliases typeAliases) (ArgType, error) {
	// Compound types carry child elements next to the name, so the name is
	// the first token of the character data rather than the whole of it.
	var name string
	if fields := strings.Fields(n.Text); len(fields) > 0 {
		name = fields[0]
	}
	switch name {
	case "ARRAY":
		elemNode := n.child("of")
		if elemNode == nil {
			return nil, fmt.Errorf("ARRAY without <of>")
		}
		elem, err := ParseTypeNode(elemNode, aliases)
		if err != nil {
			return nil, err
		}
		count := -1
		if sizeNode := n.child("size"); sizeNode != nil {
			count, err = strconv.Atoi(sizeNode.text())
			if err != nil {
				return nil, fmt.Errorf("ARRAY size: %w", err)
			}
		}
		return ArrayType{FixedCount: count, Elem: elem}, nil
	case "TUPLE":
		elemNode := n.child("of")
		if elemNode == nil {
			return nil, fmt.Errorf("TUPLE without <of>")
		}
		elem, err := ParseTypeNode(elemNode, aliases)
		if err != nil {
			return nil, err
		}
		count := -1
		if sizeNode := n.child("size"); sizeNode != nil {
			count, err = strconv.Atoi(sizeNode.text())
			if err != nil {
				return nil, fmt.Errorf("TUPLE size: %w", err)
			}
		}
		return TupleType{Elem: elem, Count: count}, nil
	case "FIXED_DICT":
		dict := FixedDictType{}
		if noneNode := n.child("AllowNone"); noneNode != nil {
			dict.AllowNone = strings.EqualFold(noneNode.text(), "true")
		}
		propsNode := n.child("Properties")
		if propsNode != nil {
			for i := range propsNode.Children {
				field := &propsNode.Children[i]
				typeNode := field.child("Type")
				if typeNode == nil {
					return nil, fmt.Errorf("FIXED_DICT field %q without <Type>", field.XMLName.Local)
				}
				ft, err := ParseTypeNode(typeNode, aliases)
				if err != nil {
					return nil, fmt.Errorf("FIXED_DICT field %q: %w", field.XMLName.Local, err)
				}
				dict.Fields = append(dict.Fields, DictField{Name: field.XMLName.Local, Type: ft})
			}
		}
		return dict, nil
	default:
		if prim, ok := basicTypes[name]; ok {
			return prim, nil
		}
		if aliased, ok := aliases[name]; ok {
			return aliased, nil
		}
		return nil, fmt.Errorf("unknown type %q", name)
	}
}

// ParseAliases loads scripts/entity_defs/alias.xml. Aliases may reference
// earlier aliases; the file is ordered so a single pass resolves everything.
func ParseAliases(path string) (typeAliases, error) {
	root, err := parseXMLFile(path)
	if err != nil {
		return nil, err
	}
	aliases := typeAliases{}
	for i := range root.Children {
		alias := &root.Children[i]
		t, err := ParseTypeNode(alias, aliases)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias.XMLName.Local, err)
		}
		aliases[alias.XMLName.Local] = t
	}
	return aliases, nil
}

type defParser struct {
	defsDir string
	aliases typeAliases
}

func (p *defParser) parseProperties(node *xmlNode, spec *EntitySpec) error {
	if node == nil {
		return nil
	}
	for i := range node.Children {
		propNode := &node.Children[i]
		typeNode := propNode.child("Type")
		flagNode := propNode.child("Flags")
		if typeNode == nil || flagNode == nil {
			// Volatile position/orientation entries and editor-only
			// properties have no wire representation.
			continue
		}
		t, err := ParseTypeNode(typeNode, p.aliases)
		if err != nil {
			return fmt.Errorf("property %q: %w", propNode.XMLName.Local, err)
		}
		prop := Property{
			Name: propNode.XMLName.Local,
			Type: t,
			Flag: parseFlag(flagNode.text()),
		}
		if prop.Flag.clientVisible() {
			spec.Properties = append(spec.Properties, prop)
		}
		if prop.Flag.cellVisible() {
			spec.InternalProperties = append(spec.InternalProperties, prop)
		}
	}
	return nil
}

func (p *defParser) parseMethods(node *xmlNode) ([]Method, error) {
	if node == nil {
		return nil, nil
	}
	var methods []Method
	for i := range node.Children {
		methodNode := &node.Children[i]
		m := Method{
			Name:                     methodNode.XMLName.Local,
			VariableLengthHeaderSize: 1,
		}
		for j := range methodNode.Children {
			child := &methodNode.Children[j]
			switch child.XMLName.Local {
			case "Arg", "Args":
				t, err := ParseTypeNode(child, p.aliases)
				if err != nil {
					return nil, fmt.Errorf("method %q arg %d: %w", m.Name, len(m.Args), err)
				}
				m.Args = append(m.Args, t)
			case "VariableLengthHeaderSize":
				size, err := strconv.Atoi(child.text())
				if err != nil {
					return nil, fmt.Errorf("method %q header size: %w", m.Name, err)
				}
				m.VariableLengthHeaderSize = size
			}
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// parseDef loads one .def file into spec, recursing into <Implements>
// interfaces first so inherited members come before the class's own, the
// order the client uses when assigning indices.
func (p *defParser) parseDef(name string, spec *EntitySpec) error {
	path := filepath.Join(p.defsDir, name+".def")
	root, err := parseXMLFile(path)
	if err != nil {
		// Interface files live one directory down.
		alt := filepath.Join(p.defsDir, "interfaces", name+".def")
		root, err = parseXMLFile(alt)
		if err != nil {
			return fmt.Errorf("definition %q: %w", name, err)
		}
	}
	if impls := root.child("Implements"); impls != nil {
		for i := range impls.Children {
			iface := impls.Children[i].text()
			if iface == "" {
				continue
			}
			if err := p.parseDef(iface, spec); err != nil {
				return err
			}
		}
	}
	if err := p.parseProperties(root.child("Properties"), spec); err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}
	client, err := p.parseMethods(root.child("ClientMethods"))
	if err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}
	spec.ClientMethods = append(spec.ClientMethods, client...)
	base, err := p.parseMethods(root.child("BaseMethods"))
	if err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}
	spec.BaseMethods = append(spec.BaseMethods, base...)
	cell, err := p.parseMethods(root.child("CellMethods"))
	if err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}
	spec.CellMethods = append(spec.CellMethods, cell...)
	return nil
}

// ParseScripts loads a game version's scripts directory: entities.xml names
// the entity classes, alias.xml supplies the shared types, and each class
// gets its .def chain resolved. The returned slice is indexed by entity type
// id minus one, matching EntityCreate payloads.
func ParseScripts(scriptsDir string) ([]*EntitySpec, error) {
	aliases, err := ParseAliases(filepath.Join(scriptsDir, "entity_defs", "alias.xml"))
	if err != nil {
		return nil, fmt.Errorf("loading aliases: %w", err)
	}
	entitiesRoot, err := parseXMLFile(filepath.Join(scriptsDir, "entities.xml"))
	if err != nil {
		return nil, fmt.Errorf("loading entity list: %w", err)
	}
	clientServer := entitiesRoot.child("ClientServerEntities")
	if clientServer == nil {
		return nil, fmt.Errorf("entities.xml has no ClientServerEntities")
	}
	p := &defParser{
		defsDir: filepath.Join(scriptsDir, "entity_defs"),
		aliases: aliases,
	}
	var specs []*EntitySpec
	for i := range clientServer.Children {
		name := clientServer.Children[i].XMLName.Local
		spec := &EntitySpec{Name: name}
		if err := p.parseDef(name, spec); err != nil {
			return nil, err
		}
		finalizeSpec(spec)
		specs = append(specs, spec)
	}
	log.Debug().Int("entities", len(specs)).Str("dir", scriptsDir).Msg("loaded entity definitions")
	return specs, nil
}

// finalizeSpec orders client methods and properties by SortSize. The sort
// must be stable: equal-sized members keep declaration order, which is what
// pins every wire index.
func finalizeSpec(spec *EntitySpec) {
	sort.SliceStable(spec.ClientMethods, func(i, j int) bool {
		return spec.ClientMethods[i].SortSize() < spec.ClientMethods[j].SortSize()
	})
	sort.SliceStable(spec.Properties, func(i, j int) bool {
		return spec.Properties[i].Type.SortSize() < spec.Properties[j].Type.SortSize()
	})
}
