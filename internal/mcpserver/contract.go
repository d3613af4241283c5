package mcpserver

// NoteFormatContract describes the note format that LLM consumers should
// follow when attaching notes to library items.
const NoteFormatContract = `# Zotero Note Format

Notes attached to Zotero items are stored as an HTML fragment, not Markdown.
Follow this structure when creating notes through the add_note tool.

## Structure

` + "```" + `html
<h1>Short descriptive heading</h1>
<p>Body paragraphs in plain HTML.</p>
<ul>
  <li>Bullet points where they help.</li>
</ul>
` + "```" + `

## Rules

1. **Use a small HTML subset.** Zotero renders <h1>-<h3>, <p>, <ul>/<ol>/<li>,
   <blockquote>, <b>, <i>, <a href>. Anything fancier is stripped or mangled
   by the desktop editor.
2. **No Markdown syntax.** Literal ` + "`" + `#` + "`" + ` or ` + "`" + `**` + "`" + ` markers end up as visible text.
3. **No <html>, <head>, or <body> wrapper.** The note is a fragment.
4. **Start with a heading or a topic sentence.** The first line doubles as the
   note title in the Zotero item pane.
5. **Tags** passed alongside the note are plain strings; lowercase them and
   keep them short (e.g. ` + "`" + `summary` + "`" + `, ` + "`" + `methods` + "`" + `, ` + "`" + `follow-up` + "`" + `).
6. **Encoding** is UTF-8. Escape literal ` + "`" + `<` + "`" + ` and ` + "`" + `&` + "`" + ` in body text.

## Example

` + "```" + `html
<h1>Summary</h1>
<p>The paper introduces an attention-only architecture and reports
state-of-the-art BLEU on WMT14 translation.</p>
<ul>
  <li>Replaces recurrence entirely with multi-head self-attention.</li>
  <li>Trains in a fraction of the time of recurrent baselines.</li>
</ul>
` + "```" + `

Writes are only possible against the Zotero Web API backend. When the server
runs against a local database snapshot, add_note fails: the snapshot belongs
to the desktop app and is opened read-only.
`
