package form

// definitionSchema is the JSON schema every form definition must satisfy.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "boundary": {
      "type": "string",
      "minLength": 1,
      "maxLength": 70,
      "pattern": "^[^\\r\\n]+$"
    },
    "fields": {
      "type": "array",
      "items": { "$ref": "#/definitions/field" }
    }
  },
  "required": ["fields"],
  "definitions": {
    "field": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": { "type": "string" },
        "value": { "type": ["string", "number", "boolean"] },
        "file": { "type": "string", "minLength": 1 },
        "filename": { "type": "string" },
        "contentType": { "type": "string", "minLength": 1 },
        "streaming": { "type": "boolean" }
      },
      "required": ["name"],
      "oneOf": [
        {
          "required": ["value"],
          "not": {
            "anyOf": [
              { "required": ["file"] },
              { "required": ["filename"] },
              { "required": ["contentType"] },
              { "required": ["streaming"] }
            ]
          }
        },
        { "required": ["file"], "not": { "required": ["value"] } }
      ]
    }
  }
}`
