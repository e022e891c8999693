package sqlinline

const QInsertGeneratedImage = `--sql 47d0b8e2-6f3a-4c91-85b4-e9a2c7d5f1ee
insert into generated_images(
  id,
  user_id,
  model,
  prompt,
  aspect_ratio,
  guidance,
  num_inference_steps,
  output_format,
  image_name,
  width,
  height,
  created_at
)
values (gen_random_uuid(), $1::uuid, $2::text, $3::text, $4::text, $5::double precision,
        $6::int, $7::text, $8::text, $9::int, $10::int, now())
returning id;
`

const QSelectImagesByUser = `--sql a92c5f70-1d8e-4b46-9c03-7f4e6a2b0dff
select id, user_id, model, prompt, aspect_ratio, guidance, num_inference_steps,
       output_format, image_name, width, height, created_at
from generated_images
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QSelectImageForUser = `--sql f15e7a93-8b2c-4d60-a7f1-c0d9e4b6a200
select id, image_name
from generated_images
where id = $1::uuid and user_id = $2::uuid;
`

const QDeleteGeneratedImage = `--sql 68b4d9c1-0e7f-42a5-b8c6-3a1f5d2e9711
delete from generated_images
where id = $1::uuid and user_id = $2::uuid;
`
