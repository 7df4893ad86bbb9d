package mcpserver

// FormatURI is the resource that documents the .fnx file format.
const FormatURI = "feathernotes://format"

// DocumentFormat describes the .fnx document format and how the tools
// address nodes.
const DocumentFormat = `# FeatherNotes Document Format

A FeatherNotes document is one ` + "`" + `.fnx` + "`" + ` file holding a tree of notes.

## File

` + "```" + `xml
<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE feathernotes>
<feathernotes txtfont="Monospace,9,-1,5,50,0,0,0,0,0" nodefont="Sans Serif,9,-1,5,50,0,0,0,0,0">
    <node name="Work" tag="job">
        <text>&lt;p&gt;rich text body&lt;/p&gt;</text>
        <node name="Plans" icon="BASE64..."/>
    </node>
</feathernotes>
` + "```" + `

1. Every ` + "`" + `node` + "`" + ` element is one note; nesting is the tree.
2. ` + "`" + `name` + "`" + ` is the title shown in the tree. ` + "`" + `tag` + "`" + ` is free text, usually
   comma separated. ` + "`" + `icon` + "`" + ` is base64 image data.
3. ` + "`" + `text` + "`" + ` holds the body as escaped rich-text HTML. Images are embedded as
   data URIs inside it.
4. A document with a ` + "`" + `pswrd` + "`" + ` attribute is saved obfuscated and cannot be
   read without its password. Such documents are indexed without content.

## Addressing nodes

- Tools name nodes by id, ` + "`" + `"<index>.<generation>"` + "`" + ` (e.g. ` + "`" + `3.1` + "`" + `). Ids stay
  valid while the node exists; a deleted node's id is never reused.
- ` + "`" + `address` + "`" + ` is the path of names from the top level, e.g. ` + "`" + `Work > Plans` + "`" + `.
- Call ` + "`" + `list_nodes` + "`" + ` first to learn the ids of the open document.

## Editing rules

- ` + "`" + `add_node` + "`" + ` takes plain text for the body. Line breaks become paragraphs.
- Images go in with ` + "`" + `embed_image` + "`" + ` (data URI or http/https URL; png, jpg, gif).
- Nothing is written to disk until the user saves the document.
`
