package dispatch

import "go.mongodb.org/mongo-driver/bson"

func bsonMarshal(v any) (bson.Raw, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bson.Raw(data), nil
}

func bsonUnmarshal(data bson.Raw, v any) error {
	return bson.Unmarshal(data, v)
}
