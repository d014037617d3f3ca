package ai

// ExtractSystemPrompt is sent as system prompt with every extraction.
const ExtractSystemPrompt = `You are a precise information extraction system. You only report entities and relationships that the text states explicitly, you never add outside knowledge, and you always answer with JSON that matches the requested schema.`

// ExtractGraphPrompt asks for the entities and relationships of one text.
// Arguments: entity types, context hint, text.
const ExtractGraphPrompt = `
# Task Context
You extract a **knowledge graph fragment** from the provided text. The fragment is merged into a larger graph later, so entity names must be the names a reader would use to refer to the same thing elsewhere.

# Background Data
- **Entity_types:** [%s]
- **Context:** %s

# Detailed Task Description & Rules
## Entities
1. Identify every entity of the given types that the text mentions explicitly. If no types are given, use short singular type names such as Person, Organization, Location, Event, Product.
2. For each entity return:
   - **name:** the full name as written in the text, in its natural capitalization (e.g. "Acme Corp", not "ACME CORP").
   - **type:** one of the entity types.
   - **label:** a coarse category for display, usually equal to the type.
   - **properties:** explicit attributes as key/value pairs (e.g. key "founded", value "1947"). Keys are lowerCamelCase. Values are plain text; write numbers without units or thousands separators when the unit is obvious from the key.
3. Never invent attributes. Omit properties the text does not state.

## Relationships
1. Return every relationship the text states between two extracted entities.
2. For each relationship return:
   - **source:** name of the source entity, exactly as in the entity list.
   - **target:** name of the target entity, exactly as in the entity list.
   - **type:** an UPPER_SNAKE_CASE verb phrase such as LEADS, WORKS_AT, LOCATED_IN, FOUNDED.
   - **description:** one sentence explaining the relationship, based strictly on the text.

# Example
**Entity_types:** Organization, Person
**Text:** Jane Martinez has led Acme Corp since 2019. The company was founded in 1947 in Phoenix.

**Output:**
{
  "entities": [
    {"name": "Acme Corp", "type": "Organization", "label": "Organization", "properties": [{"key": "founded", "value": "1947"}]},
    {"name": "Jane Martinez", "type": "Person", "label": "Person", "properties": []},
    {"name": "Phoenix", "type": "Location", "label": "Location", "properties": []}
  ],
  "relationships": [
    {"source": "Jane Martinez", "target": "Acme Corp", "type": "LEADS", "description": "Jane Martinez has led Acme Corp since 2019."},
    {"source": "Acme Corp", "target": "Phoenix", "type": "FOUNDED_IN", "description": "Acme Corp was founded in Phoenix."}
  ]
}

# Text
%s

# Output Formatting
Return a single JSON object with the arrays "entities" and "relationships". Use empty arrays when nothing is found. Do not include any text outside of the JSON.
`

// SearchQueryPrompt asks for a web search query about one entity.
// Arguments: entity name, entity type, known properties.
const SearchQueryPrompt = `
# Task Context
You write one web search query that finds new, factual information about a single entity of a knowledge graph.

# Background Data
- **Name:** %s
- **Type:** %s
- **Known properties:** %s

# Rules
- Include the name and enough context to disambiguate it.
- Prefer information the known properties do not cover yet.
- At most 12 words, no quotes, no operators.

# Output Formatting
Return only the query text.
`
