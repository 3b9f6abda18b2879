package tilestore

// logSchema describes log_data.json. Crop and slice fields are only
// required when the matching operation ran.
const logSchema = `
{ "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Reconstruction log for a cropped and/or sliced image stack",
  "type": "object",
  "properties": {
    "run_id": { "type": "string" },
    "created_at": { "type": "string" },
    "row_starts": { "$ref": "#/definitions/indices" },
    "row_ends": { "$ref": "#/definitions/indices" },
    "row_crop_size": { "type": "integer", "minimum": 1 },
    "col_starts": { "$ref": "#/definitions/indices" },
    "col_ends": { "$ref": "#/definitions/indices" },
    "col_crop_size": { "type": "integer", "minimum": 1 },
    "row_padding": { "type": "integer", "minimum": 0 },
    "col_padding": { "type": "integer", "minimum": 0 },
    "num_crops": { "type": "integer", "minimum": 1 },
    "crop_order": { "enum": ["row-major"] },
    "slice_start_indices": { "$ref": "#/definitions/indices" },
    "slice_end_indices": { "$ref": "#/definitions/indices" },
    "slice_stack_len": { "type": "integer", "minimum": 1 },
    "slice_padding": { "type": "integer", "minimum": 0 },
    "num_slices": { "type": "integer", "minimum": 1 },
    "slice_order": { "enum": ["sequential"] },
    "label_name": { "type": "string" },
    "original_shape": {
      "description": "fovs, stacks, crops, slices, rows, cols, channels",
      "type": "array",
      "minItems": 7,
      "maxItems": 7,
      "items": { "type": "integer", "minimum": 1 }
    },
    "fov_names": { "type": "array", "items": { "type": "string" } },
    "chan_names": { "type": "array", "items": { "type": "string" } }
  },
  "required": ["label_name", "original_shape", "fov_names", "chan_names"],
  "dependencies": {
    "num_crops": ["row_starts", "row_ends", "row_crop_size", "col_starts", "col_ends",
                  "col_crop_size", "row_padding", "col_padding"],
    "num_slices": ["slice_start_indices", "slice_end_indices"]
  },
  "definitions": {
    "indices": {
      "type": "array",
      "minItems": 1,
      "items": { "type": "integer", "minimum": 0 }
    }
  }
}
`
